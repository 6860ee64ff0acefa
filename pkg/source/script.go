package source

import (
	"strings"
)

const (
	// ContainerName is the name of the single container in every workload.
	ContainerName = "runner"
	// WorkDir is the working directory for directory and repository sources.
	WorkDir = "/workspace"
	// SourceMountPath is where the source ConfigMap is mounted.
	SourceMountPath = "/configmap"
	// SourceVolumeName is the pod volume backed by the source ConfigMap.
	SourceVolumeName = "source"
	// ArchiveKey is the ConfigMap key holding the packed directory.
	ArchiveKey = "source.tar.gz"
	// StartupScript runs before the user command when present in the source.
	StartupScript = "k8s-startup.sh"
	// ConfigMapSuffix is appended to the workload name to name its source
	// ConfigMap.
	ConfigMapSuffix = "-source"
)

const startupBlock = `if [ -f ` + StartupScript + ` ]; then
    echo "Running ` + StartupScript + `..."
    chmod +x ` + StartupScript + `
    ./` + StartupScript + `
fi`

// ConfigMapName returns the name of the source ConfigMap for a workload.
func ConfigMapName(workload string) string {
	return workload + ConfigMapSuffix
}

// JoinCommand joins command arguments with spaces. Arguments are not quoted,
// so shell expansion inside the container still applies.
func JoinCommand(command []string) string {
	return strings.Join(command, " ")
}

// DirectoryScript returns the shell script that unpacks a directory source
// and runs command.
func DirectoryScript(command []string) string {
	var sb strings.Builder

	sb.WriteString("set -e\n")
	sb.WriteString("cd " + WorkDir + "\n")
	sb.WriteString("echo \"Extracting source...\"\n")
	sb.WriteString("base64 -d " + SourceMountPath + "/" + ArchiveKey + " | tar -xzf -\n")
	sb.WriteString(startupBlock + "\n")
	sb.WriteString("echo 'Running command...'\n")
	sb.WriteString(JoinCommand(command))

	return sb.String()
}

// GitScript returns the shell script that clones url and runs command.
func GitScript(url string, command []string) string {
	var sb strings.Builder

	sb.WriteString("set -e\n")
	sb.WriteString("apk add --no-cache git\n")
	sb.WriteString("cd " + WorkDir + "\n")
	sb.WriteString("git clone " + url + " .\n")
	sb.WriteString(startupBlock)

	if cmd := JoinCommand(command); cmd != "" {
		sb.WriteString(" && " + cmd)
	}

	return sb.String()
}
