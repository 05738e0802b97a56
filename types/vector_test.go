package types

import "testing"

func TestNormalize(t *testing.T) {
	type spec struct {
		in  Vec3
		exp Vec3
	}
	specs := []spec{
		{Vec3{3, 0, 0}, Vec3{1, 0, 0}},
		{Vec3{0, -2, 0}, Vec3{0, -1, 0}},
		{Vec3{0, 0, 0}, Vec3{0, 0, 0}},
	}

	for index, s := range specs {
		out := s.in.Normalize()
		if !out.ApproxEqual(s.exp, 1e-6) {
			t.Fatalf("[spec %d] expected normalized vector to be %v; got %v", index, s.exp, out)
		}
	}
}

func TestCrossIsRightHanded(t *testing.T) {
	out := XYZ(1, 0, 0).Cross(XYZ(0, 1, 0))
	exp := XYZ(0, 0, 1)
	if out != exp {
		t.Fatalf("expected x cross y to be %v; got %v", exp, out)
	}
}

func TestReflect(t *testing.T) {
	out := XYZ(1, -1, 0).Reflect(XYZ(0, 1, 0))
	exp := XYZ(1, 1, 0)
	if out != exp {
		t.Fatalf("expected reflected vector to be %v; got %v", exp, out)
	}
}

func TestDivVecZeroComponents(t *testing.T) {
	out := XYZ(2, 4, 6).DivVec(XYZ(2, 0, 3))
	exp := XYZ(1, 0, 2)
	if out != exp {
		t.Fatalf("expected %v; got %v", exp, out)
	}
}

func TestIsInvalid(t *testing.T) {
	var zero float32
	if XYZ(1, 2, 3).IsInvalid() {
		t.Fatal("expected finite vector to be valid")
	}
	if !XYZ(1, 1/zero, 3).IsInvalid() {
		t.Fatal("expected vector with an infinite component to be invalid")
	}
	if !XYZ(zero/zero, 0, 0).IsInvalid() {
		t.Fatal("expected vector with a NaN component to be invalid")
	}
}
