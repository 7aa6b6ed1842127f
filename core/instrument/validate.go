package instrument

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownImport     = errors.New("instrument: unknown or mis-typed import")
	ErrForbiddenImport   = errors.New("instrument: only a single named memory import is permitted")
	ErrInvalidExport     = errors.New("instrument: export not in the allowed set")
	ErrMutableGlobalExport = errors.New("instrument: mutable global exports are rejected")
	ErrMissingEntryExport = errors.New("instrument: module exports neither init nor handle")
	ErrHasStartSection   = errors.New("instrument: start sections are rejected")
)

// Catalogue is the closed set of host-function import signatures a module
// may bind against; core/hostcall.Catalogue supplies the real one.
type Catalogue interface {
	Lookup(module, name string) (FuncType, bool)
}

// allowedExports is the closed set of export names §4.D permits.
var allowedExports = map[string]bool{
	"init": true, "handle": true, "handle_reply": true,
	"handle_signal": true, "state": true, "metahash": true,
}

// ValidateImports rejects any import that isn't a function matching the
// catalogue's signature for its name, and rejects every global/table
// import outright along with any memory import beyond a single one named
// "memory".
func ValidateImports(m *Module, cat Catalogue) error {
	memoryImports := 0
	for _, im := range m.Imports {
		switch im.Kind {
		case ImportGlobal, ImportTable:
			return fmt.Errorf("%w: %s.%s", ErrForbiddenImport, im.Module, im.Name)
		case ImportMemory:
			memoryImports++
			if memoryImports > 1 || im.Name != "memory" {
				return fmt.Errorf("%w: %s.%s", ErrForbiddenImport, im.Module, im.Name)
			}
		case ImportFunc:
			sig, ok := cat.Lookup(im.Module, im.Name)
			if !ok {
				return fmt.Errorf("%w: %s.%s", ErrUnknownImport, im.Module, im.Name)
			}
			if !sameSignature(sig, im.FuncType) {
				return fmt.Errorf("%w: %s.%s has wrong signature", ErrUnknownImport, im.Module, im.Name)
			}
		}
	}
	return nil
}

func sameSignature(a, b FuncType) bool {
	if len(a.Params) != len(b.Params) || len(a.Results) != len(b.Results) {
		return false
	}
	for i := range a.Params {
		if a.Params[i] != b.Params[i] {
			return false
		}
	}
	for i := range a.Results {
		if a.Results[i] != b.Results[i] {
			return false
		}
	}
	return true
}

// ValidateExports requires every function export to be a no-signature
// function in the allowed set, rejects mutable global exports, and requires at least
// one of init/handle to be present.
func ValidateExports(m *Module) error {
	haveEntry := false
	for _, ex := range m.Exports {
		switch ex.Kind {
		case ExportGlobal:
			if int(ex.Index) < len(m.Globals) && m.Globals[ex.Index].Mutable {
				return fmt.Errorf("%w: %s", ErrMutableGlobalExport, ex.Name)
			}
		case ExportFunc:
			if !allowedExports[ex.Name] {
				return fmt.Errorf("%w: %s", ErrInvalidExport, ex.Name)
			}
			sig, err := funcSignature(m, ex.Index)
			if err != nil {
				return err
			}
			if !sig.isEmpty() {
				return fmt.Errorf("%w: %s must have an empty signature", ErrInvalidExport, ex.Name)
			}
			if ex.Name == "init" || ex.Name == "handle" {
				haveEntry = true
			}
		}
	}
	if !haveEntry {
		return ErrMissingEntryExport
	}
	return nil
}

func funcSignature(m *Module, funcIdx uint32) (FuncType, error) {
	importedFuncs := 0
	for _, im := range m.Imports {
		if im.Kind == ImportFunc {
			if uint32(importedFuncs) == funcIdx {
				return im.FuncType, nil
			}
			importedFuncs++
		}
	}
	local := int(funcIdx) - importedFuncs
	if local < 0 || local >= len(m.Functions) {
		return FuncType{}, fmt.Errorf("instrument: export references unknown function %d", funcIdx)
	}
	ti := m.Functions[local].TypeIndex
	if int(ti) >= len(m.Types) {
		return FuncType{}, fmt.Errorf("instrument: function %d has unknown type index %d", funcIdx, ti)
	}
	return m.Types[ti], nil
}

// RejectStartSection fails if hasStart is true; the IR has no separate
// start-section field because a conforming parser never populates one —
// this stands in for the binary-level check the real decoder performs.
func RejectStartSection(hasStart bool) error {
	if hasStart {
		return ErrHasStartSection
	}
	return nil
}
