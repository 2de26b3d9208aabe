package gates

import (
	"strings"
	"testing"

	"github.com/ShayCichocki/phasegate/internal/state/statetest"
)

const compliantMockTest = `from unittest.mock import patch
# MOCK-REASON: the payment provider has no sandbox
# MOCK-REAL-TEST: tests/integration/test_payment.py::test_charge
# MOCK-EXPIRE-WHEN: provider ships a sandbox

def test_charge():
    with patch("app.pay.client"):
        pass
`

func TestMockViolations(t *testing.T) {
	tests := []struct {
		name    string
		content string
		// realTest creates the file the MOCK-REAL-TEST marker points at.
		realTest bool
		want     string
	}{
		{name: "compliant", content: compliantMockTest, realTest: true},
		{name: "missing reason", content: strings.Replace(compliantMockTest, "# MOCK-REASON: the payment provider has no sandbox\n", "", 1), realTest: true, want: "MOCK-REASON"},
		{name: "missing real test", content: strings.Replace(compliantMockTest, "# MOCK-REAL-TEST: tests/integration/test_payment.py::test_charge\n", "", 1), realTest: true, want: "missing # MOCK-REAL-TEST"},
		{name: "dangling real test", content: compliantMockTest, want: "MOCK-REAL-TEST points to tests/integration/test_payment.py"},
		{name: "real test is a directory", content: strings.Replace(compliantMockTest, "tests/integration/test_payment.py::test_charge", "tests/integration/", 1), realTest: true, want: "tests/integration/, which is a directory"},
		{name: "real test without path", content: strings.Replace(compliantMockTest, "tests/integration/test_payment.py::test_charge", "::test_charge", 1), realTest: true, want: "names no test file"},
		{name: "missing expiry", content: strings.Replace(compliantMockTest, "# MOCK-EXPIRE-WHEN: provider ships a sandbox\n", "", 1), realTest: true, want: "MOCK-EXPIRE-WHEN"},
		{name: "variable named mock is not usage", content: "mock_data = {'a': 1}\n\ndef test_a():\n    assert mock_data\n"},
		{name: "mocker fixture", content: "def test_a(mocker):\n    mocker.patch('x')\n", realTest: true, want: "MOCK-REASON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := statetest.New(t)
			p.WriteFile("tests/unit/test_pay.py", tt.content)
			if tt.realTest {
				p.WriteFile("tests/integration/test_payment.py", "def test_charge(): pass\n")
			}

			violations, scanned, err := MockViolations(p.Dir, "tests", []string{".py"})
			if err != nil {
				t.Fatalf("MockViolations() error = %v", err)
			}
			if !scanned {
				t.Fatal("scanned = false, want true")
			}
			if tt.want == "" {
				if len(violations) != 0 {
					t.Errorf("violations = %q, want none", violations)
				}
				return
			}
			joined := strings.Join(violations, "\n")
			if !strings.Contains(joined, tt.want) {
				t.Errorf("violations = %q, want one naming %q", violations, tt.want)
			}
			if !strings.Contains(joined, "tests/unit/test_pay.py") {
				t.Errorf("violations = %q, want the file path", violations)
			}
		})
	}
}

func TestMockViolations_CollectsAll(t *testing.T) {
	p := statetest.New(t)
	p.WriteFile("tests/test_a.py", "from unittest.mock import MagicMock\n")
	p.WriteFile("tests/test_b.py", "import unittest.mock\n")

	violations, _, err := MockViolations(p.Dir, "tests", []string{".py"})
	if err != nil {
		t.Fatalf("MockViolations() error = %v", err)
	}
	if len(violations) != 6 {
		t.Errorf("violations = %d, want 3 per file:\n%s", len(violations), strings.Join(violations, "\n"))
	}
}

func TestMockViolations_NoTestDir(t *testing.T) {
	p := statetest.New(t)
	violations, scanned, err := MockViolations(p.Dir, "tests", []string{".py"})
	if err != nil || scanned || violations != nil {
		t.Errorf("MockViolations() = %v, %v, %v, want nil, false, nil", violations, scanned, err)
	}
}
