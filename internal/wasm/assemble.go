package wasm

import (
	"fmt"

	"github.com/shrin18/swam/api"
	publicwasm "github.com/shrin18/swam/wasm"
)

// Assemble folds an ordered, validated section stream into an immutable Module, lowering every function body and
// constant initializer with the given engine so that instantiation performs no more code generation.
//
// Ordering and type-correctness of the stream are the external validator's responsibility; the only structural
// defense kept here is the at-most-once rule for non-custom sections, because a duplicate would silently overwrite
// an earlier fold.
func Assemble(engine Engine, sections []publicwasm.Section) (*Module, error) {
	m := &Module{ExportSection: map[string]*publicwasm.Export{}}

	seen := map[publicwasm.SectionID]bool{}
	for _, s := range sections {
		id := s.SectionID()
		if id != publicwasm.SectionIDCustom {
			if seen[id] {
				return nil, &api.CompileError{Message: fmt.Sprintf("duplicate %s section", publicwasm.SectionIDName(id))}
			}
			seen[id] = true
		}

		switch sec := s.(type) {
		case publicwasm.SectionTypes:
			m.TypeSection = sec.Types
		case publicwasm.SectionImports:
			m.ImportSection = sec.Imports
		case publicwasm.SectionFunctions:
			m.FunctionSection = sec.TypeIndices
		case publicwasm.SectionTables:
			m.TableSection = sec.Tables
		case publicwasm.SectionMemories:
			m.MemorySection = sec.Memories
		case publicwasm.SectionGlobals:
			for i := range sec.Globals {
				g := &sec.Globals[i]
				m.GlobalSection = append(m.GlobalSection, Global{Type: g.Type, Init: g.Init})
			}
		case publicwasm.SectionExports:
			for i := range sec.Exports {
				e := &sec.Exports[i]
				m.ExportSection[e.Name] = e
			}
		case publicwasm.SectionStart:
			funcIdx := sec.FuncIndex
			m.StartSection = &funcIdx
		case publicwasm.SectionElements:
			for i := range sec.Segments {
				seg := &sec.Segments[i]
				compiled, err := engine.CompileInitializer(seg.Offset)
				if err != nil {
					return nil, fmt.Errorf("compiling element segment %d offset: %w", i, err)
				}
				m.ElementSection = append(m.ElementSection, ElementSegment{
					TableIndex:     seg.TableIndex,
					OffsetCompiled: compiled,
					Init:           seg.Init,
				})
			}
		case publicwasm.SectionCode:
			for i := range sec.Bodies {
				body := &sec.Bodies[i]
				m.CodeSection = append(m.CodeSection, Code{
					LocalTypes: expandLocals(body.Locals),
					Body:       body.Body,
				})
			}
		case publicwasm.SectionData:
			for i := range sec.Segments {
				seg := &sec.Segments[i]
				compiled, err := engine.CompileInitializer(seg.Offset)
				if err != nil {
					return nil, fmt.Errorf("compiling data segment %d offset: %w", i, err)
				}
				m.DataSection = append(m.DataSection, DataSegment{
					MemoryIndex:    seg.MemoryIndex,
					OffsetCompiled: compiled,
					Init:           seg.Init,
				})
			}
		case publicwasm.SectionCustom:
			m.CustomSections = append(m.CustomSections, CustomSection{Name: sec.Name, Data: sec.Data})
		default:
			return nil, &api.CompileError{Message: fmt.Sprintf("BUG: unknown section %T", s)}
		}
	}

	if len(m.FunctionSection) != len(m.CodeSection) {
		return nil, &api.CompileError{
			Message: fmt.Sprintf("function and code section counts differ: %d != %d",
				len(m.FunctionSection), len(m.CodeSection)),
		}
	}

	// Lower every body and initializer now: the compiled module performs no code generation after this point.
	for i := range m.CodeSection {
		code := &m.CodeSection[i]
		sig := &m.TypeSection[m.FunctionSection[i]]
		compiled, err := engine.CompileFunction(m, sig, code)
		if err != nil {
			return nil, fmt.Errorf("compiling function %d/%d: %w", i, len(m.CodeSection)-1, err)
		}
		code.Compiled = compiled
	}
	for i := range m.GlobalSection {
		g := &m.GlobalSection[i]
		compiled, err := engine.CompileInitializer(g.Init)
		if err != nil {
			return nil, fmt.Errorf("compiling global %d initializer: %w", i, err)
		}
		g.InitCompiled = compiled
	}
	return m, nil
}

// expandLocals flattens the decoder's run-length encoded local groups into one type per slot.
func expandLocals(groups []publicwasm.LocalGroup) (localTypes []publicwasm.ValueType) {
	for _, g := range groups {
		for i := uint32(0); i < g.Count; i++ {
			localTypes = append(localTypes, g.Type)
		}
	}
	return
}
