package pipeline

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/vikramgaru01/back/core/infra/logging"
)

// ConfigRelPath is the location of the embedded runtime configuration inside
// the unpacked artifact tree.
const ConfigRelPath = "assets/flutter_assets/assets/config.json"

// PatchConfig replaces the embedded config file with payload. The payload
// fully replaces the original; no keys are merged. The original file must
// exist and both documents must be valid JSON.
func PatchConfig(decodedDir string, payload json.RawMessage) error {
	path := filepath.Join(decodedDir, filepath.FromSlash(ConfigRelPath))

	original, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &StageError{Stage: StagePatch, Kind: ErrConfigNotFound,
				Detail: ConfigRelPath + " missing from unpacked tree", Err: err}
		}
		return &StageError{Stage: StagePatch, Kind: ErrConfigNotFound,
			Detail: "read embedded config: " + err.Error(), Err: err}
	}
	// Parse and discard; a corrupt original means the unpack produced garbage
	// and overwriting it would mask that.
	var discard any
	if err := json.Unmarshal(original, &discard); err != nil {
		return &StageError{Stage: StagePatch, Kind: ErrConfigInvalid,
			Detail: "embedded config is not valid JSON", Err: err}
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, payload, "", "  "); err != nil {
		return &StageError{Stage: StagePatch, Kind: ErrConfigInvalid,
			Detail: "replacement payload is not valid JSON", Err: err}
	}
	buf.WriteByte('\n')

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return &StageError{Stage: StagePatch, Kind: ErrConfigInvalid,
			Detail: "write embedded config: " + err.Error(), Err: err}
	}

	// Read back and verify the bytes on disk are what we intend to ship.
	written, err := os.ReadFile(path)
	if err != nil || !bytes.Equal(written, buf.Bytes()) {
		return &StageError{Stage: StagePatch, Kind: ErrConfigInvalid,
			Detail: "post-write verification failed", Err: err}
	}
	logging.Info("patcher", "embedded config replaced", "path", ConfigRelPath, "bytes", buf.Len())
	return nil
}
