package units

import (
	"math"
	"reflect"
	"testing"

	fuzz "github.com/google/gofuzz"
	"gonum.org/v1/gonum/floats/scalar"
)

// recipe describes a derived unit over a fixed set of bases.
type recipe struct {
	Powers [4]int
	Scale  float64
}

func newRecipeFuzzer(seed int64) *fuzz.Fuzzer {
	return fuzz.NewWithSeed(seed).NilChance(0).Funcs(
		func(r *recipe, c fuzz.Continue) {
			for i := range r.Powers {
				r.Powers[i] = c.Intn(7) - 3
			}
			r.Scale = math.Exp(c.Float64()*20 - 10)
		},
	)
}

func (r recipe) build(bases []*Unit) *Unit {
	u := Dimensionless()
	for i, p := range r.Powers {
		for ; p > 0; p-- {
			u = u.Mul(bases[i])
		}
		for ; p < 0; p++ {
			u = u.Div(bases[i])
		}
	}
	return Must(u.MulScalar(r.Scale))
}

func TestAlgebraLaws(t *testing.T) {
	bases := []*Unit{NewBase("m"), NewBase("s"), NewBase("kg"), NewBase("K")}
	f := newRecipeFuzzer(1337)

	for i := 0; i < 500; i++ {
		var ra, rb recipe
		f.Fuzz(&ra)
		f.Fuzz(&rb)
		a := ra.build(bases)
		b := rb.build(bases)

		if ab, ba := a.Mul(b), b.Mul(a); !reflect.DeepEqual(ab.Parts(), ba.Parts()) || ab.Scale() != ba.Scale() {
			t.Fatalf("Multiplication should commute: %v vs %v", ab, ba)
		}

		unity := a.Mul(a.Invert())
		if !unity.IsDimensionless() || !scalar.EqualWithinAbs(unity.Scale(), 1, Epsilon) {
			t.Fatalf("u * u^-1 should be dimensionless with scale 1, got %v", unity)
		}

		back := a.Div(b).Mul(b)
		if !reflect.DeepEqual(back.Parts(), a.Parts()) || !scalar.EqualWithinRel(back.Scale(), a.Scale(), 1e-14) {
			t.Fatalf("(a/b)*b should give back a: expected %v, got %v", a, back)
		}

		k := math.Exp(float64(i%40) - 20)
		scaled := Must(a.MulScalar(k))
		if !scaled.Compatible(a) || !a.Compatible(scaled) {
			t.Fatalf("A scaling of a unit should be compatible with it: %v vs %v", scaled, a)
		}
		ratio, err := scaled.Ratio(a)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if !scalar.EqualWithinRel(ratio, k, 1e-14) {
			t.Fatalf("Expected ratio %v, got %v", k, ratio)
		}

		restored := Must(scaled.DivScalar(k))
		if !reflect.DeepEqual(restored.Parts(), a.Parts()) || !scalar.EqualWithinRel(restored.Scale(), a.Scale(), 1e-14) {
			t.Fatalf("(u*k)/k should give back u: expected %v, got %v", a, restored)
		}
	}
}

func TestBaseLaws(t *testing.T) {
	f := fuzz.NewWithSeed(42)
	for i := 0; i < 200; i++ {
		var k float64
		f.Fuzz(&k)
		k = math.Abs(k)
		if k == 0 || math.IsInf(k, 0) || math.IsNaN(k) || k < 1e-150 || k > 1e150 {
			continue
		}

		u := NewBase("u")
		other := NewBase("u")
		if !u.Compatible(u) || u.Compatible(other) {
			t.Fatal("A base is compatible with itself and nothing else")
		}
		if got := Must(Must(u.MulScalar(k)).DivScalar(k)); !got.Equal(u) {
			t.Fatalf("(u*%v)/%v: expected %v, got %v", k, k, u, got)
		}
		if unity := u.Mul(u.Invert()); !unity.IsDimensionless() || unity.Scale() != 1 {
			t.Fatalf("u * u^-1 should be dimensionless with scale 1, got %v", unity)
		}
	}
}
