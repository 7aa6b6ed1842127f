package storage

// Entity key prefixes, per §6 "Storage collaborator": program pages, gas
// nodes and reservation slots each live under a distinct namespace in the
// flat keyspace so unrelated entities never collide.
var (
	ProgramPrefix    = []byte("p")
	MemoryInfix      = []byte("m")
	GasNodesPrefix   = []byte("g")
	ReservationsPrefix = []byte("r")
)

// ProgramPageKey composes the key for a single gear page of a program's
// linear memory: {program_prefix, program_id, memory_infix, page_index}.
func ProgramPageKey(programID []byte, pageIndex uint32) []byte {
	key := make([]byte, 0, len(ProgramPrefix)+len(programID)+len(MemoryInfix)+4)
	key = append(key, ProgramPrefix...)
	key = append(key, programID...)
	key = append(key, MemoryInfix...)
	key = append(key, byte(pageIndex>>24), byte(pageIndex>>16), byte(pageIndex>>8), byte(pageIndex))
	return key
}
