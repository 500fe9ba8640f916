package version

import (
	"encoding/json"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	info := Get()
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, GitCommit, info.GitCommit)
	assert.Equal(t, BuildTime, info.BuildTime)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
	assert.NotEmpty(t, info.Engine)
}

func TestInfo_String(t *testing.T) {
	info := Info{
		Version:   "1.2.0",
		GitCommit: "abc1234",
		BuildTime: "2025-02-12",
		GoVersion: "go1.24.0",
		Platform:  "linux/amd64",
		Engine:    "v0.0.0-20250630131328-58d95d85e994",
	}
	assert.Equal(t,
		"pacparser 1.2.0 (abc1234) built 2025-02-12, goja v0.0.0-20250630131328-58d95d85e994, go1.24.0 linux/amd64",
		info.String())
}

func TestInfo_JSON(t *testing.T) {
	data, err := json.Marshal(Get())
	require.NoError(t, err)

	var fields map[string]string
	require.NoError(t, json.Unmarshal(data, &fields))
	for _, key := range []string{"version", "git_commit", "build_time", "go_version", "platform", "engine"} {
		assert.Contains(t, fields, key)
	}
}

func TestUserAgent(t *testing.T) {
	assert.True(t, strings.HasPrefix(UserAgent(), "pacparser/"))
	assert.Equal(t, "pacparser/"+Version, UserAgent())
}

func TestModuleVersion_Unknown(t *testing.T) {
	assert.Equal(t, "unknown", moduleVersion("example.com/not/linked"))
}
