package models

import "testing"

func TestCompare_Ordering(t *testing.T) {
	tests := []struct {
		name string
		a, b Score
		want Comparison
	}{
		{
			name: "compiling beats non-compiling",
			a:    NewScore(0, 50),
			b:    CompilationFailure(),
			want: Better,
		},
		{
			name: "non-compiling loses regardless of counts",
			a:    CompilationFailure(),
			b:    NewScore(0, 998),
			want: Worse,
		},
		{
			name: "higher verified count wins",
			a:    NewScore(5, 3),
			b:    NewScore(4, 0),
			want: Better,
		},
		{
			name: "fewer errors wins on equal verified",
			a:    NewScore(3, 1),
			b:    NewScore(3, 2),
			want: Better,
		},
		{
			name: "equal scores",
			a:    NewScore(3, 2),
			b:    NewScore(3, 2),
			want: Equal,
		},
		{
			name: "two compilation failures are equal",
			a:    CompilationFailure(),
			b:    CompilationFailure(),
			want: Equal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compare(tt.a, tt.b); got != tt.want {
				t.Errorf("Compare(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

// TestCompare_Antisymmetric checks that reversing the arguments flips the
// comparison for every pair in a representative set.
func TestCompare_Antisymmetric(t *testing.T) {
	scores := []Score{
		CompilationFailure(),
		NewScore(0, 10),
		NewScore(0, 0),
		NewScore(3, 2),
		NewScore(3, 0),
		NewScore(5, 0),
	}

	for _, a := range scores {
		for _, b := range scores {
			ab := Compare(a, b)
			ba := Compare(b, a)
			if ab == Better && ba != Worse {
				t.Errorf("Compare(%v, %v)=better but Compare(%v, %v)=%v", a, b, b, a, ba)
			}
			if ab == Equal && ba != Equal {
				t.Errorf("Compare(%v, %v)=equal but Compare(%v, %v)=%v", a, b, b, a, ba)
			}
		}
	}
}

// TestCompare_Transitive walks every triple of a representative score set and
// checks that better-than is transitive, i.e. Compare forms a strict weak
// ordering.
func TestCompare_Transitive(t *testing.T) {
	scores := []Score{
		CompilationFailure(),
		NewScore(0, 10),
		NewScore(0, 3),
		NewScore(2, 5),
		NewScore(2, 1),
		NewScore(4, 0),
	}

	for _, a := range scores {
		for _, b := range scores {
			for _, c := range scores {
				if Compare(a, b) == Better && Compare(b, c) == Better {
					if Compare(a, c) != Better {
						t.Errorf("transitivity violated: %v > %v > %v but Compare(%v, %v) = %v",
							a, b, c, a, c, Compare(a, c))
					}
				}
			}
		}
	}
}

func TestScore_IsVerified(t *testing.T) {
	if !NewScore(5, 0).IsVerified() {
		t.Error("expected 5 verified / 0 errors to be verified")
	}
	if NewScore(5, 1).IsVerified() {
		t.Error("expected nonzero errors to not be verified")
	}
	if CompilationFailure().IsVerified() {
		t.Error("expected compilation failure to not be verified")
	}
}

func TestCompilationFailure_Sentinels(t *testing.T) {
	s := CompilationFailure()
	if s.VerifiedCount != SentinelVerified {
		t.Errorf("VerifiedCount = %d, want %d", s.VerifiedCount, SentinelVerified)
	}
	if s.ErrorCount != SentinelErrors {
		t.Errorf("ErrorCount = %d, want %d", s.ErrorCount, SentinelErrors)
	}
	if !s.CompilationError {
		t.Error("CompilationError = false, want true")
	}
}
