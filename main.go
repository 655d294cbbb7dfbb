// Command hsecrawler crawls a site, builds its link graph and ranks its pages.
package main

import "github.com/gorbunovakris4/hse-crawler/cmd"

func main() {
	cmd.Execute()
}
