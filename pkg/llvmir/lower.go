package llvmir

import (
	"fmt"
	"strings"

	lir "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/metadata"
	"github.com/llir/llvm/ir/value"

	"github.com/715d/sdrange/pkg/ir"
)

// operandLister is implemented by llir instructions and terminators.
type operandLister interface {
	Operands() []*value.Value
}

// attachmentLister is implemented by llir values carrying !name attachments.
type attachmentLister interface {
	MDAttachments() []*metadata.Attachment
}

type lowerer struct {
	b   *ir.Builder
	ids map[any]ir.InstID
	mds map[*metadata.Tuple]*ir.MDTuple
}

// Lower converts a parsed llir module into the pkg/ir model.
func Lower(name string, m *lir.Module) *ir.Module {
	l := &lowerer{
		b:   ir.NewBuilder(name),
		ids: make(map[any]ir.InstID),
		mds: make(map[*metadata.Tuple]*ir.MDTuple),
	}

	// Number every instruction first so forward references (phis, uses in
	// later blocks) resolve. The builder hands out IDs in the same order.
	next := ir.InstID(0)
	for _, f := range m.Funcs {
		for _, blk := range f.Blocks {
			for _, inst := range blk.Insts {
				l.ids[inst] = next
				next++
			}
			if blk.Term != nil {
				l.ids[blk.Term] = next
				next++
			}
		}
	}

	for _, f := range m.Funcs {
		if len(f.Blocks) == 0 {
			l.b.Declare(f.Name())
			continue
		}
		fb := l.b.Func(f.Name())
		for _, blk := range f.Blocks {
			bb := fb.Block(strings.TrimPrefix(blk.Ident(), "%"))
			for _, inst := range blk.Insts {
				l.lowerInst(bb, inst)
			}
			if blk.Term != nil {
				l.lowerInst(bb, blk.Term)
			}
		}
	}
	return l.b.Build()
}

func (l *lowerer) lowerInst(bb *ir.BlockBuilder, inst any) {
	var out *ir.Instruction
	if call, ok := inst.(*lir.InstCall); ok {
		args := make([]ir.Value, 0, len(call.Args))
		for _, arg := range call.Args {
			args = append(args, l.value(arg))
		}
		out = bb.Call(l.value(call.Callee), args...)
	} else {
		var ops []ir.Value
		if lister, ok := inst.(operandLister); ok {
			for _, op := range lister.Operands() {
				if op != nil {
					ops = append(ops, l.value(*op))
				}
			}
		}
		out = bb.Inst(opcode(inst), ops...)
	}
	out.Loc = debugLocation(inst)
}

func (l *lowerer) value(v value.Value) ir.Value {
	switch v := v.(type) {
	case nil:
		return ir.Opaque{}
	case *lir.Func:
		return ir.FuncRef{Name: v.Name()}
	case *metadata.Value:
		return ir.MetadataArg{Node: l.metadata(v.Value)}
	}
	if id, ok := l.ids[v]; ok {
		return ir.InstRef{ID: id}
	}
	return ir.Opaque{Text: v.Ident()}
}

func (l *lowerer) metadata(md any) ir.Metadata {
	switch md := md.(type) {
	case nil:
		return nil
	case *metadata.String:
		return ir.Str(md.Value)
	case *metadata.Tuple:
		if t, ok := l.mds[md]; ok {
			return t
		}
		t := &ir.MDTuple{}
		l.mds[md] = t
		for _, field := range md.Fields {
			t.Operands = append(t.Operands, l.metadata(field))
		}
		return t
	}
	return &ir.MDOther{Text: fmt.Sprintf("%T", md)}
}

// opcode derives the instruction name from its llir type: *ir.InstLoad
// becomes "load", *ir.TermRet becomes "ret".
func opcode(inst any) string {
	name := fmt.Sprintf("%T", inst)
	name = name[strings.LastIndexByte(name, '.')+1:]
	name = strings.TrimPrefix(name, "Inst")
	name = strings.TrimPrefix(name, "Term")
	return strings.ToLower(name)
}

// debugLocation reads the !dbg attachment of inst.
func debugLocation(inst any) *ir.Location {
	lister, ok := inst.(attachmentLister)
	if !ok {
		return nil
	}
	for _, md := range lister.MDAttachments() {
		if strings.TrimPrefix(md.Name, "!") != "dbg" {
			continue
		}
		loc, ok := md.Node.(*metadata.DILocation)
		if !ok {
			continue
		}
		file, fn := scopeInfo(loc.Scope)
		return &ir.Location{
			File:     file,
			Function: fn,
			Line:     uint32(loc.Line),
			Column:   uint32(loc.Column),
		}
	}
	return nil
}

// scopeInfo walks lexical scopes outwards to the enclosing subprogram. The
// innermost file wins, matching how debuggers attribute inlined blocks.
func scopeInfo(scope metadata.Field) (file, function string) {
	for range 64 {
		switch s := scope.(type) {
		case *metadata.DISubprogram:
			if file == "" {
				file = fileName(s.File)
			}
			return file, s.Name
		case *metadata.DILexicalBlock:
			if file == "" {
				file = fileName(s.File)
			}
			scope = s.Scope
		case *metadata.DILexicalBlockFile:
			if file == "" {
				file = fileName(s.File)
			}
			scope = s.Scope
		case *metadata.DIFile:
			if file == "" {
				file = s.Filename
			}
			return file, function
		default:
			return file, function
		}
	}
	return file, function
}

func fileName(f *metadata.DIFile) string {
	if f == nil {
		return ""
	}
	return f.Filename
}
