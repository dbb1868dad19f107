package main

import "github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/cmd"

func main() {
	cmd.Main()
}
