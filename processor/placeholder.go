package processor

import (
	"os"
	"regexp"
	"strings"
)

var envPlaceholder = regexp.MustCompile(`\{ENV:([^}]+)\}`)

// resolveQueueGroup expands the queue-group placeholders documented in
// spec §6, purely lexically and at listener startup: {POD_NAME},
// {HOSTNAME}, {MACHINE_NAME}, and any number of {ENV:NAME} occurrences.
// An unset {ENV:NAME} expands to the empty string.
func resolveQueueGroup(template string) string {
	hostname, _ := os.Hostname()

	resolved := template
	resolved = strings.ReplaceAll(resolved, "{POD_NAME}", firstNonEmpty(os.Getenv("POD_NAME"), os.Getenv("HOSTNAME"), hostname))
	resolved = strings.ReplaceAll(resolved, "{HOSTNAME}", firstNonEmpty(os.Getenv("HOSTNAME"), hostname))
	resolved = strings.ReplaceAll(resolved, "{MACHINE_NAME}", hostname)
	resolved = envPlaceholder.ReplaceAllStringFunc(resolved, func(match string) string {
		name := envPlaceholder.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
	return resolved
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
