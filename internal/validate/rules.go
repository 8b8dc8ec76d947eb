package validate

import (
	"fmt"
	"strconv"
)

func required[T any](field string, get func(T) string) Rule[T] {
	return func(c T) string {
		if get(c) == "" {
			return field + " is required"
		}
		return ""
	}
}

func positive[T any, N int | int64](field string, get func(T) N) Rule[T] {
	return func(c T) string {
		if get(c) <= 0 {
			return fmt.Sprintf("%s must be > 0, got %d", field, get(c))
		}
		return ""
	}
}

func nonNegative[T any](field string, get func(T) int) Rule[T] {
	return func(c T) string {
		if get(c) < 0 {
			return fmt.Sprintf("%s must be >= 0, got %d", field, get(c))
		}
		return ""
	}
}

func teamSlot[T any](get func(T) int) Rule[T] {
	return func(c T) string {
		if s := get(c); s != 1 && s != 2 {
			return fmt.Sprintf("team_slot must be 1 or 2, got %d", s)
		}
		return ""
	}
}

func oneOf[T any, E ~string](field string, get func(T) E, allowed ...E) Rule[T] {
	return func(c T) string {
		v := get(c)
		for _, a := range allowed {
			if v == a {
				return ""
			}
		}
		return fmt.Sprintf("%s %q is not one of %v", field, string(v), allowed)
	}
}

func optionalIntMin[T any](field string, get func(T) *int, lo int) Rule[T] {
	return func(c T) string {
		if v := get(c); v != nil && *v < lo {
			return fmt.Sprintf("%s must be >= %d, got %d", field, lo, *v)
		}
		return ""
	}
}

func optionalRange[T any](field string, get func(T) *float64, lo, hi float64) Rule[T] {
	return func(c T) string {
		if v := get(c); v != nil && (*v < lo || *v > hi) {
			return fmt.Sprintf("%s must be in [%s, %s], got %s", field, fmtFloat(lo), fmtFloat(hi), fmtFloat(*v))
		}
		return ""
	}
}

func optionalMin[T any](field string, get func(T) *float64, lo float64) Rule[T] {
	return func(c T) string {
		if v := get(c); v != nil && *v < lo {
			return fmt.Sprintf("%s must be >= %s, got %s", field, fmtFloat(lo), fmtFloat(*v))
		}
		return ""
	}
}

func softMax[T any](field string, get func(T) *float64, hi float64) Rule[T] {
	return func(c T) string {
		if v := get(c); v != nil && *v > hi {
			return fmt.Sprintf("%s %s above %s", field, fmtFloat(*v), fmtFloat(hi))
		}
		return ""
	}
}

func fmtFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
