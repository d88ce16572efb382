// Package relations detects which records belong together: shared author and
// narrator identities, series membership and the universe hierarchy above
// series.
//
// Name variants are merged into identities with a union-find structure so a
// variant never competes against its canonical form. Series containment is a
// parent-pointer tree over normalized series keys. Detection is pure and
// deterministic for a given input order.
package relations
