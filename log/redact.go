package log

import (
	"net/url"
	"strings"
)

// RedactURL strips the password out of URL-like strings. Hosted source URLs
// can carry access tokens in their userinfo, keep those out of the logs.
func RedactURL(str string) string {
	if !strings.Contains(str, "://") {
		return str
	}
	u, err := url.Parse(str)
	if err != nil {
		return "REDACTED"
	}
	return u.Redacted()
}

// RedactLogs splits logs on delimiter and redacts every URL-like chunk. Used
// on captured subprocess output before it is attached to errors or logged.
func RedactLogs(logs, delimiter string) string {
	chunks := strings.Split(logs, delimiter)
	if len(chunks) == 1 {
		return logs
	}
	for i, chunk := range chunks {
		if strings.Contains(chunk, "://") {
			chunks[i] = RedactURL(chunk)
		}
	}
	return strings.Join(chunks, delimiter)
}

func redactKeyvals(keyvals ...interface{}) []interface{} {
	out := make([]interface{}, 0, len(keyvals))
	for _, kv := range keyvals {
		if str, ok := kv.(string); ok {
			out = append(out, RedactURL(str))
		} else {
			out = append(out, kv)
		}
	}
	return out
}
