/*
Package util includes utility/helper functions that may be useful to other modules.
*/
package util

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// ExpandUser expands '~' to user's home directory, if found, otherwise returns original path
func ExpandUser(path string) string {
	usr, err := user.Current()
	if err != nil {
		return path
	}
	if path == "~" {
		return usr.HomeDir
	}
	if strings.HasPrefix(path, "~"+string(os.PathSeparator)) {
		return filepath.Join(usr.HomeDir, path[2:])
	}
	return path
}

// AbsPath returns absolute path after expanding '~' to user's home dir
func AbsPath(path string) (string, error) {
	return filepath.Abs(ExpandUser(path))
}

// FileExists checks if a file exists at the given path.
// It returns a boolean indicating whether the file exists, and an error if the
// path refers to a non-regular file, e.g., a directory.
func FileExists(path string) (exists bool, err error) {
	var fileInfo fs.FileInfo
	fileInfo, err = os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			err = nil
		}
		return
	}
	if !fileInfo.Mode().IsRegular() {
		err = fmt.Errorf("%s not a file", path)
		return
	}
	exists = true
	return
}

// DeviceExists reports whether a device node (or any other file) is present
// at path. The msr and cpuid drivers expose character devices, so the regular
// file check in FileExists does not apply.
func DeviceExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// GetAppDir returns the directory of the executable
func GetAppDir() string {
	exePath, _ := os.Executable()
	return filepath.Dir(exePath)
}

// IntRangeToIntList expands a string representing a range of integers into a slice of integers.
// For example, "1-3" will be expanded to [1, 2, 3]. And, "5" will be expanded to [5].
func IntRangeToIntList(input string) ([]int, error) {
	re := regexp.MustCompile(`^(\d+)(?:-(\d+))?$`)
	matches := re.FindStringSubmatch(strings.TrimSpace(input))
	if len(matches) == 0 {
		return nil, fmt.Errorf("invalid input format: %s", input)
	}
	start, err := strconv.Atoi(matches[1])
	if err != nil {
		return nil, fmt.Errorf("invalid start value: %s", matches[1])
	}
	if matches[2] == "" {
		return []int{start}, nil
	}
	end, err := strconv.Atoi(matches[2])
	if err != nil {
		return nil, fmt.Errorf("invalid end value: %s", matches[2])
	}
	if start > end {
		return nil, fmt.Errorf("start value is greater than end value: %d > %d", start, end)
	}
	result := make([]int, 0, end-start+1)
	for i := start; i <= end; i++ {
		result = append(result, i)
	}
	return result, nil
}

// SelectiveIntRangeToIntList expands a kernel style CPU list, e.g. the content
// of /sys/devices/system/cpu/online. "0-3,7,9-10" expands to [0 1 2 3 7 9 10].
func SelectiveIntRangeToIntList(input string) ([]int, error) {
	var result []int
	for r := range strings.SplitSeq(strings.TrimSpace(input), ",") {
		ints, err := IntRangeToIntList(r)
		if err != nil {
			return nil, err
		}
		result = append(result, ints...)
	}
	return result, nil
}

// Uint64FromNumLowerBits returns a mask with the lowest numBits bits set.
func Uint64FromNumLowerBits(numBits int) (uint64, error) {
	if numBits < 0 || numBits > 64 {
		return 0, fmt.Errorf("number of bits out of range: %d", numBits)
	}
	if numBits == 64 {
		return ^uint64(0), nil
	}
	return (uint64(1) << numBits) - 1, nil
}

// IsUint64BitSet reports whether bit is set in x.
func IsUint64BitSet(x uint64, bit int) (bool, error) {
	if bit < 0 || bit > 63 {
		return false, fmt.Errorf("bit out of range: %d", bit)
	}
	return x&(uint64(1)<<bit) != 0, nil
}

// GetBits extracts the width-bit field starting at offset from value.
func GetBits(value uint64, offset, width int) uint64 {
	mask, _ := Uint64FromNumLowerBits(width)
	return (value >> offset) & mask
}

// SetBits returns value with the width-bit field at offset replaced by the
// low width bits of field. Bits outside the field are preserved.
func SetBits(value uint64, field uint64, offset, width int) uint64 {
	mask, _ := Uint64FromNumLowerBits(width)
	return (value &^ (mask << offset)) | ((field & mask) << offset)
}
