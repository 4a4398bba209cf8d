//go:build ignore

// This is a tool to assist with tagging fmbridge releases.
// It bumps version.AgentVersion in version/version.go and prints the
// git commands that publish the tag. The release workflow then builds
// the CLI binaries and fmbridge.wasm from build_release.go.
//
// To run: go run tag_version.go -bump minor

package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"regexp"
	"strconv"

	"github.com/fmbridge/fmbridge/version"
)

const versionFile = "version/version.go"

var (
	bump   = flag.String("bump", "patch", "version component to bump: major, minor or patch")
	dryRun = flag.Bool("n", false, "print the new version without writing "+versionFile)
)

var semverRE = regexp.MustCompile(`^v(\d+)\.(\d+)\.(\d+)$`)

var agentVersionRE = regexp.MustCompile(`(AgentVersion = )"[^"]*"`)

func main() {
	flag.Parse()

	current := version.AgentVersion
	next, err := nextVersion(current, *bump)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s => %s\n", current, next)

	if *dryRun {
		return
	}

	if err := exec.Command("git", "diff", "--quiet").Run(); err != nil {
		log.Fatalf("Cannot tag with pending changes to your working directory: %s", err)
	}

	src, err := os.ReadFile(versionFile)
	if err != nil {
		log.Fatal(err)
	}
	if !agentVersionRE.Match(src) {
		log.Fatalf("No AgentVersion assignment found in %s", versionFile)
	}
	src = agentVersionRE.ReplaceAll(src, []byte(`${1}"`+next+`"`))
	if err := os.WriteFile(versionFile, src, 0644); err != nil {
		log.Fatal(err)
	}

	fmt.Print("Run:\n\n")
	fmt.Println("go test ./... && GOOS=js GOARCH=wasm go build -o /dev/null ./wasm/module &&\\")
	fmt.Printf("git add %s && git commit -m \"Release %s\" &&\\\n", versionFile, next)
	fmt.Printf("git tag %s\n", next)
	fmt.Print("\nThen:\n\n")
	fmt.Println("git push --tags")
}

// nextVersion bumps one component of a vMAJOR.MINOR.PATCH version and
// resets the ones after it.
func nextVersion(v, component string) (string, error) {
	m := semverRE.FindStringSubmatch(v)
	if m == nil {
		return "", fmt.Errorf("unexpected version format %q", v)
	}

	var parts [3]int
	for i := range parts {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return "", err
		}
		parts[i] = n
	}

	switch component {
	case "major":
		parts = [3]int{parts[0] + 1, 0, 0}
	case "minor":
		parts = [3]int{parts[0], parts[1] + 1, 0}
	case "patch":
		parts[2]++
	default:
		return "", fmt.Errorf("unknown version component %q", component)
	}

	return fmt.Sprintf("v%d.%d.%d", parts[0], parts[1], parts[2]), nil
}
