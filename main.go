// The main package for the listingwatch executable.
package main

import (
	"github.com/JakeFAU/listingwatch/cmd"
)

func main() {
	cmd.Execute()
}
