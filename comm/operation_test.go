package comm

import "testing"

func TestStandardOps(t *testing.T) {
	type testCase struct {
		op       StandardOp
		a, b     []int32
		expected []int32
	}
	cases := []testCase{
		{Max, []int32{1, 5}, []int32{3, 2}, []int32{3, 5}},
		{Min, []int32{1, 5}, []int32{3, 2}, []int32{1, 2}},
		{Sum, []int32{1, 5}, []int32{3, 2}, []int32{4, 7}},
		{Product, []int32{1, 5}, []int32{3, 2}, []int32{3, 10}},
		{LogicalAnd, []int32{0, 5}, []int32{3, 2}, []int32{0, 1}},
		{LogicalOr, []int32{0, 0}, []int32{3, 0}, []int32{1, 0}},
		{LogicalXor, []int32{0, 4}, []int32{3, 2}, []int32{1, 0}},
		{BitwiseAnd, []int32{6, 5}, []int32{3, 2}, []int32{2, 0}},
		{BitwiseOr, []int32{6, 5}, []int32{3, 2}, []int32{7, 7}},
		{BitwiseXor, []int32{6, 5}, []int32{3, 2}, []int32{5, 7}},
	}
	for _, c := range cases {
		b := append([]int32{}, c.b...)
		if err := c.op.Apply(Bytes(c.a), Bytes(b), Int32); err != nil {
			t.Errorf("%s: %v", c.op, err)
			continue
		}
		for i, x := range c.expected {
			if b[i] != x {
				t.Errorf("%s: expected %v but got %v", c.op, c.expected, b)
				break
			}
		}
	}
}

func TestStandardOpsFloat(t *testing.T) {
	a := []float64{1.5, -2}
	b := []float64{0.5, 4}
	if err := Sum.Apply(Bytes(a), Bytes(b), Float64); err != nil {
		t.Fatal(err)
	}
	if b[0] != 2 || b[1] != 2 {
		t.Errorf("unexpected sum: %v", b)
	}
	if err := BitwiseOr.Apply(Bytes(a), Bytes(b), Float64); err == nil {
		t.Error("bitwise operations on floats should fail")
	}
}

func TestOperationFunc(t *testing.T) {
	concat := OperationFunc(func(a, b uint16) uint16 { return a*10 + b }, false)
	if concat.Commutative() {
		t.Error("operation should not be commutative")
	}
	a := []uint16{1}
	b := []uint16{2}
	if err := concat.Apply(Bytes(a), Bytes(b), Uint16); err != nil {
		t.Fatal(err)
	}
	if b[0] != 12 {
		t.Errorf("expected 12 but got %d", b[0])
	}
	if err := concat.Apply(Bytes(a), Bytes(b), Int16); err == nil {
		t.Error("expected a type mismatch")
	}
}
