package tokencount

import "testing"

func TestHeuristicCounterEmpty(t *testing.T) {
	c := NewHeuristicCounter("test", 4096)
	if got := c.Count(""); got != 0 {
		t.Fatalf("Count(\"\") = %d, want 0", got)
	}
}

func TestHeuristicCounterBasicEstimation(t *testing.T) {
	c := NewHeuristicCounter("test", 4096)

	if got := c.Count("Hello world"); got < 2 || got > 4 {
		t.Fatalf("Count(\"Hello world\") = %d, want 2-4", got)
	}

	long := "The quick brown fox jumps over the lazy dog"
	if got := c.Count(long); got < 8 || got > 14 {
		t.Fatalf("Count(long) = %d, want 8-14", got)
	}
}

func TestHeuristicCounterPunctuationIncreasesCount(t *testing.T) {
	c := NewHeuristicCounter("test", 4096)

	withPunct := c.Count("Hello, world! How are you?")
	withoutPunct := c.Count("Hello world How are you")

	if withPunct <= withoutPunct {
		t.Fatalf("punctuation should increase token count: %d vs %d", withPunct, withoutPunct)
	}
}

func TestHeuristicCounterCalibration(t *testing.T) {
	c := NewHeuristicCounter("test", 4096)

	c.Calibrate([]CalibrationSample{
		{Text: "Hello", ActualTokens: 1},
		{Text: "Hello world", ActualTokens: 2},
		{Text: "The quick brown fox", ActualTokens: 4},
	})

	// total chars 5+11+19=35, total tokens 1+2+4=7, ratio 5.0
	if diff := c.charsPerToken - 5.0; diff > 0.01 || diff < -0.01 {
		t.Fatalf("charsPerToken after calibration = %v, want ~5.0", c.charsPerToken)
	}

	if got := c.Count("Hello"); got != 1 {
		t.Fatalf("calibrated Count(\"Hello\") = %d, want 1", got)
	}
	if got := c.Count("Hello world"); got != 2 {
		t.Fatalf("calibrated Count(\"Hello world\") = %d, want 2", got)
	}
}

func TestHeuristicCounterUnicode(t *testing.T) {
	c := NewHeuristicCounter("test", 4096)

	if got := c.Count("Hello \U0001F44B World \U0001F30D"); got < 4 {
		t.Fatalf("Count(emoji text) = %d, want >= 4", got)
	}
}

func TestHeuristicCounterBatch(t *testing.T) {
	c := NewHeuristicCounter("test", 4096)

	counts := c.CountBatch([]string{"Hello", "World", "Test"})
	if len(counts) != 3 {
		t.Fatalf("CountBatch returned %d counts, want 3", len(counts))
	}
	for _, n := range counts {
		if n <= 0 {
			t.Fatalf("expected every count > 0, got %d", n)
		}
	}
}
