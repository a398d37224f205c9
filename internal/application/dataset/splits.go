package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Split names accepted by Open and Get.
const (
	SplitTrain = "train"
	SplitVal   = "val"
	SplitTest  = "test"
)

// Split modes.
const (
	SplitModeRandom   = "random"
	SplitModeScaffold = "scaffold"
)

// Splits lists the splits in build order.
var Splits = []string{SplitTrain, SplitVal, SplitTest}

// IndexKey returns the key under which split is listed in a split index
// file; the validation split is stored as "valid".
func IndexKey(split string) string {
	if split == SplitVal {
		return "valid"
	}
	return split
}

func ValidateSplit(split string) error {
	switch split {
	case SplitTrain, SplitVal, SplitTest:
		return nil
	}
	return ErrSplitUnknown.WithDetail(split)
}

func ValidateSplitMode(mode string) error {
	switch mode {
	case SplitModeRandom, SplitModeScaffold:
		return nil
	}
	return ErrSplitModeUnknown.WithDetail(mode)
}

// SplitIndex maps index keys (train, valid, test) to absolute record
// indices.
type SplitIndex map[string][]int

// SplitIndexFile returns the name of the split index file for mode.
func SplitIndexFile(mode string) string {
	return fmt.Sprintf("%s_split_inds.json", mode)
}

// LoadSplitIndex reads {mode}_split_inds.json from rawDir.
func LoadSplitIndex(rawDir, mode string) (SplitIndex, error) {
	path := filepath.Join(rawDir, SplitIndexFile(mode))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrRawDataMissing.WithDetail(path)
		}
		return nil, ErrSplitIndexMalformed.WithDetail(path).WithCause(err)
	}
	var idx SplitIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, ErrSplitIndexMalformed.WithDetail(path).WithCause(err)
	}
	return idx, nil
}

// Check verifies that every split key is present and every index is in
// [0, n).
func (s SplitIndex) Check(n int) error {
	for _, split := range Splits {
		key := IndexKey(split)
		inds, ok := s[key]
		if !ok {
			return ErrSplitIndexMalformed.WithDetailf("key %q missing", key)
		}
		for _, i := range inds {
			if i < 0 || i >= n {
				return ErrSplitIndexMalformed.WithDetailf("%s index %d out of range [0, %d)", key, i, n)
			}
		}
	}
	return nil
}
