// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package devicehost

import "os/exec"

// Update shells out to a configured command for a version check and a
// separate one for an inventory push. Either path left empty is treated
// as a no-op success, matching a device image that doesn't support one
// of the two triggers.
type Update struct {
	CheckCommand     []string
	InventoryCommand []string
}

// NewUpdate returns an Update host driving checkCmd/inventoryCmd.
func NewUpdate(checkCmd, inventoryCmd []string) *Update {
	return &Update{CheckCommand: checkCmd, InventoryCommand: inventoryCmd}
}

func (u *Update) Execute() error {
	return run(u.CheckCommand)
}

func (u *Update) InventoryExecute() error {
	return run(u.InventoryCommand)
}

func run(argv []string) error {
	if len(argv) == 0 {
		return nil
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		l.Warnf("command %v failed: %v: %s", argv, err, out)
	}
	return err
}
