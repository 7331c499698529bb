package audit

import (
	"os"
	"path/filepath"
	"testing"
)

func FuzzVerify(f *testing.F) {
	tmpDir := f.TempDir()
	validLog := filepath.Join(tmpDir, "valid.jsonl")
	al, err := Open(validLog)
	if err != nil {
		f.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := al.Record(Entry{
			SessionID: "s-fuzz",
			Source:    SourceHook,
			Tool:      "Bash",
			Command:   "git status",
			Decision:  DecisionAllow,
		}); err != nil {
			f.Fatal(err)
		}
	}
	al.Close()
	validData, _ := os.ReadFile(validLog)
	f.Add(validData)

	f.Add([]byte{})
	f.Add([]byte(`{"not":"a valid entry"}` + "\n"))
	f.Add([]byte(`not json`))

	f.Fuzz(func(t *testing.T, data []byte) {
		tmpFile := filepath.Join(t.TempDir(), "fuzz.jsonl")
		if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
			t.Fatal(err)
		}
		// Must not panic
		Verify(tmpFile)
	})
}
