// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/bmadx/bmadx/cmd/bmadx"

func main() {
	cmd.Execute()
}
