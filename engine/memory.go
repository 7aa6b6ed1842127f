package engine

import "github.com/tetratelabs/wazero/api"

// Memory adapts wazero's api.Memory to core/memory.GuestMemory, the
// minimal surface the access manager and lazy-page context need.
type Memory struct {
	m api.Memory
}

func (m *Memory) Size() uint32 { return m.m.Size() }

func (m *Memory) ReadAt(offset, size uint32) ([]byte, bool) {
	return m.m.Read(offset, size)
}

func (m *Memory) WriteAt(offset uint32, data []byte) bool {
	return m.m.Write(offset, data)
}
