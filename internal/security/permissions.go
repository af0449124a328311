package security

import (
	"fmt"
	"os"
)

const (
	// PermConfigFile is for configuration files containing webhook secrets.
	// rw-r----- (0640): owner can read/write, group can read, others have no access.
	PermConfigFile os.FileMode = 0640

	// PermLogFile is for log files that may contain deploy output.
	PermLogFile os.FileMode = 0640

	// PermDBFile is for the journal database.
	PermDBFile os.FileMode = 0640

	// PermDirectory is for directories created by the receiver.
	PermDirectory os.FileMode = 0750
)

// IsWorldReadable reports whether a file mode is readable by others.
func IsWorldReadable(perm os.FileMode) bool {
	return perm&0004 != 0
}

// IsWorldWritable reports whether a file mode is writable by others.
func IsWorldWritable(perm os.FileMode) bool {
	return perm&0002 != 0
}

// ValidateSecurePermissions validates that a sensitive file is neither
// world-readable nor world-writable. Used on the config file, which holds
// the webhook secrets.
func ValidateSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	perm := info.Mode().Perm()

	if IsWorldReadable(perm) {
		return fmt.Errorf("file %s is world-readable (%04o), which is insecure for sensitive data", path, perm)
	}

	if IsWorldWritable(perm) {
		return fmt.Errorf("file %s is world-writable (%04o), which is a serious security risk", path, perm)
	}

	return nil
}

// FixFilePermissions sets the correct permissions on an existing file.
func FixFilePermissions(path string, perm os.FileMode) error {
	if err := os.Chmod(path, perm); err != nil {
		return fmt.Errorf("failed to fix file permissions: %w", err)
	}
	return nil
}
