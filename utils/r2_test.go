package utils

import (
	"context"
	"testing"

	"wager-settlement-system/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestR2ArchiverURL(t *testing.T) {
	cfg := config.R2Config{
		AccountID:       "acct123",
		AccessKeyID:     "key",
		AccessKeySecret: "secret",
		Bucket:          "receipts-bucket",
	}

	archiver, err := NewR2Archiver(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "https://acct123.r2.cloudflarestorage.com/receipts-bucket/receipts/w1.json", archiver.URL("receipts/w1.json"))

	cfg.CDNBaseURL = "https://cdn.wager.test/"
	archiver, err = NewR2Archiver(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.wager.test/receipts/w1.json", archiver.URL("receipts/w1.json"))
}
