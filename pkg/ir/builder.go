package ir

// Builder assembles a Module. Loaders and tests use it; once Build is called
// the module is treated as read-only.
type Builder struct {
	mod *Module
}

// NewBuilder starts a new module with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{mod: &Module{
		Name:  name,
		index: make(map[string]*Function),
	}}
}

// Declare adds a function without a body. Declaring an existing name returns
// the existing function.
func (b *Builder) Declare(name string) *Function {
	if fn, ok := b.mod.index[name]; ok {
		return fn
	}
	fn := &Function{Name: name}
	b.mod.Funcs = append(b.mod.Funcs, fn)
	b.mod.index[name] = fn
	return fn
}

// Func adds (or reopens) a function and returns a builder for its body.
func (b *Builder) Func(name string) *FuncBuilder {
	return &FuncBuilder{b: b, fn: b.Declare(name)}
}

// Build computes def-use information and returns the finished module.
func (b *Builder) Build() *Module {
	m := b.mod
	m.users = make(map[InstID][]InstID)
	for _, inst := range m.insts {
		for _, v := range inst.values() {
			if ref, ok := v.(InstRef); ok && ref.ID != inst.ID {
				m.users[ref.ID] = appendUnique(m.users[ref.ID], inst.ID)
			}
		}
	}
	return m
}

func (b *Builder) newInst(blk *Block, opcode string, callee Value, ops []Value) *Instruction {
	inst := &Instruction{
		ID:       InstID(len(b.mod.insts)),
		Opcode:   opcode,
		Callee:   callee,
		Operands: ops,
		Block:    blk,
	}
	b.mod.insts = append(b.mod.insts, inst)
	blk.Insts = append(blk.Insts, inst)
	return inst
}

// FuncBuilder adds blocks to a function.
type FuncBuilder struct {
	b  *Builder
	fn *Function
}

// Function returns the function being built.
func (fb *FuncBuilder) Function() *Function {
	return fb.fn
}

// Block appends a basic block.
func (fb *FuncBuilder) Block(name string) *BlockBuilder {
	blk := &Block{Name: name, Parent: fb.fn}
	fb.fn.Blocks = append(fb.fn.Blocks, blk)
	return &BlockBuilder{b: fb.b, blk: blk}
}

// BlockBuilder appends instructions to a block.
type BlockBuilder struct {
	b   *Builder
	blk *Block
}

// Call appends a call instruction.
func (bb *BlockBuilder) Call(callee Value, args ...Value) *Instruction {
	return bb.b.newInst(bb.blk, OpCall, callee, args)
}

// Inst appends a non-call instruction.
func (bb *BlockBuilder) Inst(opcode string, ops ...Value) *Instruction {
	return bb.b.newInst(bb.blk, opcode, nil, ops)
}

// Ref returns a value referring to the result of inst.
func Ref(inst *Instruction) InstRef {
	return InstRef{ID: inst.ID}
}

// Func returns a value referring to the named function.
func Func(name string) FuncRef {
	return FuncRef{Name: name}
}

// MD wraps a metadata node as a call argument.
func MD(node Metadata) MetadataArg {
	return MetadataArg{Node: node}
}

func (i *Instruction) values() []Value {
	if i.Callee == nil {
		return i.Operands
	}
	return append([]Value{i.Callee}, i.Operands...)
}

func appendUnique(ids []InstID, id InstID) []InstID {
	if n := len(ids); n > 0 && ids[n-1] == id {
		return ids
	}
	return append(ids, id)
}
