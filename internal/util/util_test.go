// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntRangeToIntList(t *testing.T) {
	tests := []struct {
		input   string
		want    []int
		wantErr bool
	}{
		{"1-3", []int{1, 2, 3}, false},
		{"5", []int{5}, false},
		{"0-0", []int{0}, false},
		{"3-1", nil, true},
		{"a-b", nil, true},
		{"", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := IntRangeToIntList(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelectiveIntRangeToIntList(t *testing.T) {
	tests := []struct {
		input   string
		want    []int
		wantErr bool
	}{
		{"0-3\n", []int{0, 1, 2, 3}, false},
		{"0-3,7,9-10", []int{0, 1, 2, 3, 7, 9, 10}, false},
		{"0", []int{0}, false},
		{"0-3,,5", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := SelectiveIntRangeToIntList(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUint64FromNumLowerBits(t *testing.T) {
	tests := []struct {
		numBits  int
		expected uint64
		wantErr  bool
	}{
		{0, 0, false},
		{1, 1, false},
		{3, 7, false},
		{7, 0x7f, false},
		{32, 0xffffffff, false},
		{64, 0xffffffffffffffff, false},
		{-1, 0, true},
		{65, 0, true},
	}
	for _, tt := range tests {
		got, err := Uint64FromNumLowerBits(tt.numBits)
		if tt.wantErr {
			assert.Error(t, err, "numBits %d", tt.numBits)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.expected, got, "numBits %d", tt.numBits)
	}
}

func TestIsUint64BitSet(t *testing.T) {
	tests := []struct {
		name    string
		x       uint64
		bit     int
		want    bool
		wantErr bool
	}{
		{"bit 25 set", 1 << 25, 25, true, false},
		{"bit 9 clear", 1 << 8, 9, false, false},
		{"bit 63 set", 1 << 63, 63, true, false},
		{"negative bit", 1, -1, false, true},
		{"bit 64", 1, 64, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IsUint64BitSet(tt.x, tt.bit)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetBits(t *testing.T) {
	// COFVID status style layout
	value := uint64(0x2f)<<49 | uint64(0x12)<<42 | uint64(0x05)<<16
	assert.Equal(t, uint64(0x2f), GetBits(value, 49, 6))
	assert.Equal(t, uint64(0x12), GetBits(value, 42, 7))
	assert.Equal(t, uint64(0x05), GetBits(value, 16, 3))
	assert.Equal(t, uint64(0), GetBits(value, 0, 16))
}

func TestSetBits(t *testing.T) {
	tests := []struct {
		name   string
		value  uint64
		field  uint64
		offset int
		width  int
		want   uint64
	}{
		{"low field", 0xffff, 0x3, 0, 3, 0xfffb},
		{"middle field preserves neighbors", 0xffffffff, 0, 9, 7, 0xffff01ff},
		{"field truncated to width", 0, 0xff, 4, 4, 0xf0},
		{"high bit", 0, 1, 63, 1, 1 << 63},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SetBits(tt.value, tt.field, tt.offset, tt.width))
		})
	}
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.env")
	exists, err := FileExists(path)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, os.WriteFile(path, []byte("X=1\n"), 0600))
	exists, err = FileExists(path)
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = FileExists(dir)
	assert.Error(t, err)
	assert.True(t, DeviceExists(dir))
}
