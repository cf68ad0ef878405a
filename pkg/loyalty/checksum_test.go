package loyalty

import "testing"

const (
	namasteCodeBody     = "NAMASTE-ABC123"
	namasteCodeChecksum = 'H'
)

func TestComputeChecksumKnownValues(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name     string
		code     string
		expected byte
	}{
		{name: "single character", code: "A", expected: 'E'},
		{name: "short code", code: "ABC", expected: 'G'},
		{name: "prefixed code", code: "TEST-000001", expected: 'D'},
		{name: "delivery code", code: namasteCodeBody, expected: namasteCodeChecksum},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			if got := ComputeChecksum(testCase.code); got != testCase.expected {
				test.Fatalf("expected %q, got %q", testCase.expected, got)
			}
		})
	}
}

func TestChecksumRoundTrip(test *testing.T) {
	test.Parallel()
	generator := NewCodeGenerator(nil)
	for attempt := 0; attempt < 200; attempt++ {
		code, err := generator.DeliveryCode("TEST")
		if err != nil {
			test.Fatalf("generate: %v", err)
		}
		if !VerifyChecksum(AppendChecksum(code.String())) {
			test.Fatalf("round trip failed for %s", code.String())
		}
	}
}

func TestVerifyChecksumRejectsEveryWrongCheckCharacter(test *testing.T) {
	test.Parallel()
	rejected := 0
	for index := 0; index < len(checksumAlphabet); index++ {
		candidate := checksumAlphabet[index]
		if candidate == namasteCodeChecksum {
			continue
		}
		if VerifyChecksum(namasteCodeBody + string(candidate)) {
			test.Fatalf("expected %q to be rejected", candidate)
		}
		rejected++
	}
	if rejected != 35 {
		test.Fatalf("expected 35 rejected check characters, got %d", rejected)
	}
}

func TestVerifyChecksumRejectsShortInput(test *testing.T) {
	test.Parallel()
	for _, input := range []string{"", "A"} {
		if VerifyChecksum(input) {
			test.Fatalf("expected %q to be rejected", input)
		}
	}
}

func TestSplitChecksum(test *testing.T) {
	test.Parallel()
	body, check := SplitChecksum(namasteCodeBody + "H")
	if body != namasteCodeBody || check != 'H' {
		test.Fatalf("unexpected split %q %q", body, check)
	}
	if body, check := SplitChecksum(""); body != "" || check != 0 {
		test.Fatalf("expected empty split, got %q %q", body, check)
	}
}
