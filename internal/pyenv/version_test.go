package pyenv

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knlsetup/internal/hostenv"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in      string
		want    Version
		wantErr bool
	}{
		{in: "3.12.1", want: Version{3, 12, 1}},
		{in: "3.11", want: Version{3, 11, 0}},
		{in: "3.13.0rc2", want: Version{3, 13, 0}},
		{in: "  3.10.4\nextra", want: Version{3, 10, 4}},
		{in: "three", wantErr: true},
		{in: "3", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseVersion(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAcceptableMatchesTupleComparison(t *testing.T) {
	for reqMajor := 2; reqMajor <= 4; reqMajor++ {
		for reqMinor := 0; reqMinor <= 20; reqMinor++ {
			req := Requirement{Major: reqMajor, Minor: reqMinor}
			for major := 1; major <= 5; major++ {
				for minor := 0; minor <= 25; minor++ {
					for _, patch := range []int{0, 9} {
						v := Version{Major: major, Minor: minor, Patch: patch}
						want := major > reqMajor || (major == reqMajor && minor >= reqMinor)
						require.Equal(t, want, Acceptable(v, req), "%s against %s", v, req)
					}
				}
			}
		}
	}
}

func TestVersionJSON(t *testing.T) {
	data, err := json.Marshal(Version{3, 12, 4})
	require.NoError(t, err)
	assert.JSONEq(t, `"3.12.4"`, string(data))

	var v Version
	require.NoError(t, json.Unmarshal([]byte(`"3.11.2"`), &v))
	assert.Equal(t, "3.11", v.MajorMinor())
}

func TestParseRequirement(t *testing.T) {
	tests := []struct {
		spec string
		want Requirement
		ok   bool
	}{
		{">=3.11", Requirement{Major: 3, Minor: 11}, true},
		{">= 3.12.2", Requirement{Major: 3, Minor: 12}, true},
		{">=3.10,<4", Requirement{Major: 3, Minor: 10}, true},
		{"<4, >= 3 . 9", Requirement{Major: 3, Minor: 9}, true},
		{"~=3.11", Requirement{}, false},
		{"", Requirement{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, ok := ParseRequirement(tt.spec)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequirementFromManifest(t *testing.T) {
	write := func(t *testing.T, body string) hostenv.Environment {
		dir := t.TempDir()
		if body != "" {
			require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), []byte(body), 0o644))
		}
		return hostenv.Environment{Cwd: dir}
	}

	t.Run("declared", func(t *testing.T) {
		env := write(t, "[project]\nname = \"knl\"\nrequires-python = \">= 3.12\"\n")
		assert.Equal(t, Requirement{Major: 3, Minor: 12, Origin: OriginManifest}, RequirementFromManifest(env))
	})
	t.Run("missing file", func(t *testing.T) {
		assert.Equal(t, DefaultRequirement(), RequirementFromManifest(write(t, "")))
	})
	t.Run("invalid toml", func(t *testing.T) {
		assert.Equal(t, DefaultRequirement(), RequirementFromManifest(write(t, "[project\n")))
	})
	t.Run("unparsable specifier", func(t *testing.T) {
		env := write(t, "[project]\nrequires-python = \"~=3\"\n")
		assert.Equal(t, DefaultRequirement(), RequirementFromManifest(env))
	})
}

func TestParseMinimum(t *testing.T) {
	req, err := ParseMinimum("3.13")
	require.NoError(t, err)
	assert.Equal(t, Requirement{Major: 3, Minor: 13, Origin: OriginFlag}, req)

	for _, bad := range []string{"3", "latest", "v3.12"} {
		_, err := ParseMinimum(bad)
		assert.Error(t, err, fmt.Sprintf("ParseMinimum(%q)", bad))
	}
}
