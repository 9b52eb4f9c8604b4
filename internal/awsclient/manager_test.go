// Copyright (C) 2025 The image-variant-worker Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package awsclient

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/sigysmund/function-image-upload-resize/config"
)

func TestS3Options(t *testing.T) {
	opts := S3Options(appconfig.AWSStorageConfig{
		Region:       "eu-west-1",
		Role:         "arn:aws:iam::123456789012:role/resizer",
		Endpoint:     "http://localhost:9000",
		UsePathStyle: true,
	})
	require.Len(t, opts, 4)

	var sc s3Config
	for _, o := range opts {
		o(&sc)
	}
	assert.Equal(t, "eu-west-1", sc.Region)
	assert.Equal(t, "arn:aws:iam::123456789012:role/resizer", sc.RoleARN)
	assert.Len(t, sc.applyS3s, 2)
	assert.Empty(t, sc.applyConfigs)
}

func TestS3OptionsEmpty(t *testing.T) {
	assert.Empty(t, S3Options(appconfig.AWSStorageConfig{}))
}

func TestCredentialsCachedPerRole(t *testing.T) {
	base := aws.AnonymousCredentials{}
	m := &Manager{
		baseCfg:   aws.Config{Region: "us-east-1", Credentials: base},
		providers: make(map[roleKey]aws.CredentialsProvider),
	}

	cfg := m.configFor("", "")
	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, base, cfg.Credentials)
	assert.Len(t, m.providers, 1)

	_ = m.configFor("us-west-2", "")
	_ = m.configFor("us-west-2", "")
	assert.Len(t, m.providers, 2)
}
