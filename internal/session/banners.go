package session

import (
	"fmt"
	"time"
)

const (
	bannerConnected    = "\U0001F680 Terminal connected!\r\n\r\n"
	bannerReconnecting = "Reconnecting...\r\n"
)

func bannerExit(code int) string {
	return fmt.Sprintf("\r\nProcess exited with code %d\r\n", code)
}

func bannerError(msg string) string {
	return fmt.Sprintf("\r\n\x1b[31mError: %s\x1b[0m\r\n", msg)
}

func bannerLost(retryIn time.Duration) string {
	s := "\r\n\x1b[31mConnection to the terminal host lost.\x1b[0m\r\n"
	if retryIn > 0 {
		s += fmt.Sprintf("Reconnecting in %s...\r\n", roundDelay(retryIn))
	}
	return s
}

func bannerUnavailable(retryIn time.Duration) string {
	s := "\x1b[33m⚠ Terminal host not available.\x1b[0m\r\n"
	if retryIn > 0 {
		s += fmt.Sprintf("Retrying in %s...\r\n", roundDelay(retryIn))
	}
	return s
}

// BannerRefused is shown when the user tries to close the last tab.
const BannerRefused = "\r\n\x1b[33mAt least one tab must stay open.\x1b[0m\r\n"

func roundDelay(d time.Duration) time.Duration {
	if d >= time.Second {
		return d.Round(time.Second)
	}
	return d.Round(time.Millisecond)
}
