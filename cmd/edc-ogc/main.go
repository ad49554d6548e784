package main

import "github.com/eurodatacube/edc-qgis-plugin/internal/cli"

func main() {
	cli.Execute()
}
