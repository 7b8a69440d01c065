package provision

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"knlsetup/internal/paths"
)

// ErrNotInstalled is returned by LoadRecord when a root holds no install.
var ErrNotInstalled = errors.New("knl is not installed here")

// writeRecord persists the pin, provenance marker and install.yaml. The
// content carries no timestamps, so identical inputs give identical bytes.
func writeRecord(ip paths.InstallPaths, rec Record) error {
	if rec.RuntimeVersion != "" {
		if err := os.WriteFile(ip.PinFile, []byte(rec.RuntimeVersion+"\n"), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", paths.PinFileName, err)
		}
	}
	if err := os.WriteFile(ip.VersionFile, []byte(rec.Provenance+"\n"), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", paths.VersionFileName, err)
	}

	data, err := yaml.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := os.WriteFile(ip.RecordFile, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", paths.RecordFileName, err)
	}
	return nil
}

// LoadRecord reads the installation record under a root. Roots written before
// install.yaml existed are reconstructed from the provenance marker.
func LoadRecord(ip paths.InstallPaths) (Record, error) {
	data, err := os.ReadFile(ip.RecordFile)
	if err == nil {
		var rec Record
		if err := yaml.Unmarshal(data, &rec); err != nil {
			return Record{}, fmt.Errorf("decode %s: %w", ip.RecordFile, err)
		}
		return rec, nil
	}
	if !os.IsNotExist(err) {
		return Record{}, fmt.Errorf("read %s: %w", ip.RecordFile, err)
	}

	provenance, err := os.ReadFile(ip.VersionFile)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, ErrNotInstalled
		}
		return Record{}, fmt.Errorf("read %s: %w", ip.VersionFile, err)
	}
	rec := Record{Root: ip.Root, Provenance: strings.TrimSpace(string(provenance))}
	if pin, err := os.ReadFile(ip.PinFile); err == nil {
		rec.RuntimeVersion = strings.TrimSpace(string(pin))
		rec.PinFile = ip.PinFile
	}
	if strings.HasPrefix(rec.Provenance, "artifact:") {
		rec.Mode = "prebuilt"
		rec.Entrypoint = ip.ArtifactFile
	} else {
		rec.Mode = "source"
		rec.Entrypoint = ip.VenvEntrypoint("knl")
	}
	return rec, nil
}
