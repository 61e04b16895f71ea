package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateArgument(t *testing.T) {
	tests := []struct {
		name    string
		arg     string
		wantErr bool
	}{
		{"plain flag", "--stdin", false},
		{"flag with relative value", "--load-path=.", false},
		{"flag with system value", "--include=/usr/include", false},
		{"relative path", "./styles", false},
		{"command injection semicolon", "--stdin; rm -rf /", true},
		{"command injection pipe", "x | cat /etc/passwd", true},
		{"command injection backtick", "x`whoami`", true},
		{"subshell", "file$(whoami).scss", true},
		{"path traversal", "../../../etc/passwd", true},
		{"flag with traversal", "--load-path=../secret", true},
		{"absolute path", "/home/user/file", true},
		{"flag with absolute value", "--load-path=/home/user", true},
		{"newline", "a\nb", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateArgument(tt.arg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateCommand(t *testing.T) {
	allowed := []string{"sass", "lessc"}

	assert.NoError(t, ValidateCommand("sass", allowed))
	assert.Error(t, ValidateCommand("", allowed))
	assert.Error(t, ValidateCommand("bash", allowed))
	assert.Error(t, ValidateCommand("sass;", []string{"sass;"}))
}

func TestValidateCommandLine(t *testing.T) {
	allowed := []string{"sass"}

	assert.NoError(t, ValidateCommandLine("sass", []string{"--stdin", "--no-source-map", "--load-path=."}, allowed))
	assert.Error(t, ValidateCommandLine("sass", []string{"--stdin", "&&", "rm"}, allowed))
	assert.Error(t, ValidateCommandLine("node", nil, allowed))
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{"src/styles.css", false},
		{"./dist", false},
		{"a/../b", false},
		{"", true},
		{"../outside", true},
		{"..", true},
		{"/etc/passwd", true},
		{"/proc/self/environ", true},
		{"dist;rm", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := ValidatePath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateOutputDir(t *testing.T) {
	assert.NoError(t, ValidateOutputDir("dist"))
	assert.NoError(t, ValidateOutputDir("build/out"))
	assert.Error(t, ValidateOutputDir("/tmp/out"))
	assert.Error(t, ValidateOutputDir("."))
	assert.Error(t, ValidateOutputDir("../dist"))
}

func TestValidateExtension(t *testing.T) {
	assert.NoError(t, ValidateExtension(".css"))
	assert.NoError(t, ValidateExtension(".scss"))
	assert.Error(t, ValidateExtension("css"))
	assert.Error(t, ValidateExtension("."))
	assert.Error(t, ValidateExtension(".tar.gz"))
	assert.Error(t, ValidateExtension("./x"))
}

func TestValidateOrigin(t *testing.T) {
	allowed := []string{"localhost:3000", "https://example.com"}

	assert.NoError(t, ValidateOrigin("http://localhost:3000", allowed))
	assert.NoError(t, ValidateOrigin("https://example.com", allowed))
	assert.Error(t, ValidateOrigin("", allowed))
	assert.Error(t, ValidateOrigin("ftp://localhost:3000", allowed))
	assert.Error(t, ValidateOrigin("http://evil.com", allowed))
}

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "Error: bad\tinput\n", SanitizeInput("Error: bad\tinput\n"))
	assert.Equal(t, "[31mred", SanitizeInput("\x1b[31mred"))
	assert.Equal(t, "ab", SanitizeInput("a\x00b"))
}
