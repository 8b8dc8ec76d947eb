// The main package for the hltv-scraper executable.
package main

import (
	"github.com/w1tte/hltv-scraper-sub000/cmd"
)

func main() {
	cmd.Execute()
}
