package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScaledDelayClampsFactor(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, (&localQueue{speedup: 10}).scaledDelay(time.Second))
	assert.Equal(t, time.Second, (&localQueue{speedup: 1}).scaledDelay(time.Second))
	// A zero or negative factor must not divide by zero.
	assert.Equal(t, time.Second, (&localQueue{speedup: 0}).scaledDelay(time.Second))
	assert.Equal(t, time.Second, (&localQueue{speedup: -5}).scaledDelay(time.Second))
}

func TestParseComplexities(t *testing.T) {
	out, err := parseComplexities("2, 5,8")
	assert.NoError(t, err)
	assert.Equal(t, []int{2, 5, 8}, out)

	_, err = parseComplexities("2,x")
	assert.Error(t, err)
}
