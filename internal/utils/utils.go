package utils

import "time"

func Ptr[T any](v T) *T {
	return &v
}

func DefaultIfNil[T any](ptr *T, defaultVal T) T {
	if ptr == nil {
		return defaultVal
	}
	return *ptr
}

func SecondsToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}
