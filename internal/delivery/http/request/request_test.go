package request

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubmitJobRequestValidate(t *testing.T) {
	assert.NoError(t, (&SubmitJobRequest{ProfileName: "shop"}).Validate())
	assert.Error(t, (&SubmitJobRequest{}).Validate())
	assert.Error(t, (&SubmitJobRequest{ProfileName: "shop", URLOverride: strings.Repeat("x", 2049)}).Validate())
}
