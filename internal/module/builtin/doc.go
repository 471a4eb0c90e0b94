// Package builtin provides the core module that ships with Keygrid.
//
// The core module owns the components every installation needs:
//
//   - renderer: how a button is drawn (background, library image, text)
//   - panel_link: pressing the button opens an embedded sub-panel
//   - panel_back: pressing the button returns to the previous panel
//
// Sub-panels opened through panel_link carry a commit hook, so edits made
// while the sub-panel is visible are written back into the linking button
// when the stack is committed.
package builtin
