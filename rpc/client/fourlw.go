package client

import (
	"fmt"
	"io"
	"net"
	"time"
)

// SendFourLetterWord sends a four letter word to a server and returns the
// plain text answer. The server closes the connection after answering, an
// unknown word yields an empty answer.
func SendFourLetterWord(network, endpoint, word string, timeout time.Duration) (string, error) {
	if len(word) != 4 {
		return "", fmt.Errorf("invalid four letter word %q", word)
	}

	conn, err := net.DialTimeout(network, endpoint, timeout)
	if err != nil {
		return "", fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}
	defer conn.Close()

	if timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return "", err
		}
	}

	if _, err := io.WriteString(conn, word); err != nil {
		return "", fmt.Errorf("failed to send %s: %w", word, err)
	}

	// Unknown words are read as the start of a request frame, the half close
	// ends that read on the server
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		if err := cw.CloseWrite(); err != nil {
			return "", err
		}
	}

	resp, err := io.ReadAll(conn)
	if err != nil {
		return "", fmt.Errorf("failed to read the answer to %s: %w", word, err)
	}
	return string(resp), nil
}
