/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package smartplaylist

import "github.com/friendsincode/grimnir_player/internal/models"

// Merge concatenates the given lists, dropping any playlist whose ID was
// already seen. The first occurrence wins and relative order is preserved.
func Merge(lists ...[]models.Playlist) []models.Playlist {
	n := 0
	for _, l := range lists {
		n += len(l)
	}
	seen := make(map[string]struct{}, n)
	out := make([]models.Playlist, 0, n)
	for _, l := range lists {
		for _, p := range l {
			if _, dup := seen[p.ID]; dup {
				continue
			}
			seen[p.ID] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}
