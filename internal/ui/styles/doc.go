// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the wiserchat terminal UI.

# Colors (colors.go)

All colors are Lip Gloss AdaptiveColor values so they follow the terminal's
light or dark background:

	Purple, Cyan       - assistant and user accents
	Emerald, Amber     - finished and stopped answers
	Rose               - errors
	TextPrimary ...    - text hierarchy

Status messages carry ASCII indicators ([OK], [X], [!]) so they read
without color.

# Theme (theme.go)

	theme := styles.NewTheme()
	renderer, _ := glamour.NewTermRenderer(glamour.WithStandardStyle(theme.GlamourStyle()))

# Spinners (animations.go)

	sp := spinner.New()
	sp.Spinner = styles.LineSpinner.Bubbles()
*/
package styles
