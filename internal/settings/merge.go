package settings

// String returns the first non-empty value. Callers list flag, config and default in
// that order so flags take precedence over the config file.
func String(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}

	return ""
}

// Int returns the first positive value.
func Int(values ...int) int {
	for _, value := range values {
		if value > 0 {
			return value
		}
	}

	return 0
}

// Float returns the first positive value.
func Float(values ...float64) float64 {
	for _, value := range values {
		if value > 0 {
			return value
		}
	}

	return 0
}
