package sysinfo

import (
	"context"
	"runtime"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollect(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	info := Collect(context.Background(), log)
	require.NotNil(t, info)

	assert.Equal(t, runtime.GOOS, info.OS)
	assert.NotEmpty(t, info.Arch)
	assert.Positive(t, info.CPUCores)
}
