package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSettingsURL(t *testing.T) {
	assert.Equal(t, "http://localhost:8080/", settingsURL(":8080"))
	assert.Equal(t, "http://127.0.0.1:9000/", settingsURL("127.0.0.1:9000"))
}
