package ir

import "testing"

func TestResolveResultType(t *testing.T) {
	fn := NewFunction("f")
	p := fn.AddArg("p", Ptr(SpaceGlobal, 64))
	ps := fn.AddArg("ps", Vec(8, Ptr(SpaceGlobal, 64)))
	v4 := fn.AddArg("v4", Vec(4, I32))
	v2 := fn.AddArg("v2", Vec(2, I32))
	x := fn.AddArg("x", I32)
	m := fn.AddArg("m", Vec(12, Bool))
	pass := fn.AddArg("pass", Vec(8, F32))

	tests := []struct {
		name      string
		op        Op
		wantType  Type
		inferable bool
	}{
		{"binary", &Binary{X: v4, Y: v4}, Vec(4, I32), true},
		{"compare scalar", &Compare{X: x, Y: x}, Bool, true},
		{"compare vector", &Compare{X: v4, Y: v4}, Vec(4, Bool), true},
		{"select", &Select{Cond: m, X: v4, Y: v4}, Vec(4, I32), true},
		{"shuffle", &Shuffle{X: v4, Indices: []int{3, 2, 1, 0, 0}}, Vec(5, I32), true},
		{"shuffle single lane", &Shuffle{X: v4, Indices: []int{2}}, Vec(1, I32), true},
		{"concat", &Concat{Parts: []ValueHandle{v4, v2, x}}, Vec(7, I32), true},
		{"packmask", &PackMask{X: m}, I16, true},
		{"atomicrmw", &AtomicRMW{Ptr: p, Value: x}, I32, true},
		{"cmpxchg", &AtomicCmpXchg{Ptr: p, Expected: x, New: x, Success: NoValue}, I32, true},
		{"gather passthru", &Gather{Ptrs: ps, Mask: NoValue, Passthru: pass}, Vec(8, F32), true},
		{"gather no passthru", &Gather{Ptrs: ps, Mask: NoValue, Passthru: NoValue}, nil, false},
		{"store", &Store{Ptr: p, Value: x}, nil, true},
		{"scatter", &Scatter{Value: pass, Ptrs: ps, Mask: NoValue}, nil, true},
		{"fence", &Fence{Space: SpaceLocal}, nil, true},
		{"return void", &Return{Value: NoValue}, nil, true},
		{"load", &Load{Ptr: p}, nil, false},
		{"cast", &Cast{Kind: CastBitcast, X: x}, nil, false},
		{"intrinsic", &Intrinsic{Name: "x", Args: []ValueHandle{x}}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, inferable, err := ResolveResultType(fn, tt.op)
			if err != nil {
				t.Fatalf("ResolveResultType() error = %v", err)
			}
			if inferable != tt.inferable {
				t.Errorf("inferable = %v, want %v", inferable, tt.inferable)
			}
			if got != tt.wantType {
				t.Errorf("type = %v, want %v", got, tt.wantType)
			}
		})
	}
}

func TestResolveResultType_Errors(t *testing.T) {
	fn := NewFunction("f")
	v4 := fn.AddArg("v4", Vec(4, I32))
	f := fn.AddArg("f", Vec(2, F32))

	tests := []struct {
		name string
		op   Op
	}{
		{"missing operand", &Load{Ptr: NoValue}},
		{"operand out of range", &Binary{X: v4, Y: ValueHandle(99)}},
		{"shuffle out of range", &Shuffle{X: v4, Indices: []int{4}}},
		{"shuffle negative", &Shuffle{X: v4, Indices: []int{-1}}},
		{"shuffle empty", &Shuffle{X: v4}},
		{"concat empty", &Concat{}},
		{"concat mixed", &Concat{Parts: []ValueHandle{v4, f}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ResolveResultType(fn, tt.op); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestMaskContainer(t *testing.T) {
	tests := []struct {
		lanes int
		want  Type
	}{
		{1, I8},
		{8, I8},
		{9, I16},
		{16, I16},
		{17, Vec(3, I8)},
		{32, I32},
		{33, Vec(5, I8)},
		{64, I64},
		{24, Vec(3, I8)},
		{37, Vec(5, I8)},
		{72, Vec(9, I8)},
	}
	for _, tt := range tests {
		if got := MaskContainer(tt.lanes); got != tt.want {
			t.Errorf("MaskContainer(%d) = %v, want %v", tt.lanes, got, tt.want)
		}
	}
}

func TestTypeHelpers(t *testing.T) {
	tests := []struct {
		typ       Type
		lanes     int
		elemBits  int
		byteSize  int
		elemBytes int
	}{
		{I8, 1, 8, 1, 1},
		{Vec(4, F32), 4, 32, 16, 4},
		{Ptr(SpaceGlobal, 64), 1, 64, 8, 8},
		{Vec(3, Ptr(SpaceLocal, 32)), 3, 32, 12, 4},
		{Bool, 1, 1, 1, 1},
		{Vec(16, Bool), 16, 1, 2, 1},
		{Vec(24, Bool), 24, 1, 3, 1},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			if got := Lanes(tt.typ); got != tt.lanes {
				t.Errorf("Lanes = %d, want %d", got, tt.lanes)
			}
			if got := ElemBits(tt.typ); got != tt.elemBits {
				t.Errorf("ElemBits = %d, want %d", got, tt.elemBits)
			}
			if got := ByteSize(tt.typ); got != tt.byteSize {
				t.Errorf("ByteSize = %d, want %d", got, tt.byteSize)
			}
			if got := ElemBytes(tt.typ); got != tt.elemBytes {
				t.Errorf("ElemBytes = %d, want %d", got, tt.elemBytes)
			}
		})
	}

	if WithElem(Vec(4, F32), I32) != Type(Vec(4, I32)) {
		t.Error("WithElem must keep the lane count")
	}
	if WithElem(F32, I32) != Type(I32) {
		t.Error("WithElem of a scalar returns the new element")
	}
	if !IsBool(Vec(2, Bool)) || IsBool(I8) {
		t.Error("IsBool")
	}
	if !IsPointer(Vec(2, Ptr(SpaceGeneric, 64))) || IsPointer(I64) {
		t.Error("IsPointer")
	}
}
