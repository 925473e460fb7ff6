package mcpserver

// DocumentFormatContract describes the canonical YAML document format
// that LLM consumers should follow when creating or editing documents.
const DocumentFormatContract = `# Ehwaz Document Format Contract

Every YAML document stored in an Ehwaz workspace MUST follow this structure.

## Structure

` + "```" + `yaml
id: 2f1c7e9a-...                  # REQUIRED - stable document identity (UUID)
stamp: 2026-01-15T10:30:00Z       # REQUIRED - last-save timestamp (RFC 3339)
objects:
  - name: Sketch                  # REQUIRED - internal name, unique in the document
    label: Profile                # OPTIONAL - display label; defaults to the name
    parent: Body                  # OPTIONAL - internal name of the owning object
    fields:
      - name: Base                # link field name, unique per object
        kind: link                # link | linksub | linksublist | xlink
        target: Pad               # target object internal name (link, linksub)
        paths:                    # element paths into the target (linksub and up)
          - value: Edge3          # user-visible element path
            shadowed: ;g2;Edge3   # stable generation-tagged form
            mapped: true          # true when value already carries the tag
` + "```" + `

## Rules

1. **Internal names are immutable.** Rename the ` + "`" + `label` + "`" + `, never the ` + "`" + `name` + "`" + `.
2. **Field kinds.** ` + "`" + `link` + "`" + ` holds one target, ` + "`" + `linksub` + "`" + ` one target plus
   element paths, ` + "`" + `linksublist` + "`" + ` parallel ` + "`" + `targets` + "`" + ` and ` + "`" + `paths` + "`" + ` arrays,
   ` + "`" + `xlink` + "`" + ` a cross-document reference.
3. **Cross-document fields** carry ` + "`" + `file` + "`" + ` (path relative to the owning
   document), ` + "`" + `object` + "`" + `, ` + "`" + `stamp` + "`" + ` (target stamp at save time) and an
   optional ` + "`" + `partial: true` + "`" + ` marker.
4. **Element paths** prefixed with ` + "`" + `$` + "`" + ` address a sub-object by label
   (e.g. ` + "`" + `$Profile.Edge1` + "`" + `); all other paths use internal names.
5. **A leading ` + "`" + `?` + "`" + ` in a shadowed path** marks an element that could not
   be resolved at save time. Do not add or strip it by hand.
6. **File paths** end with ` + "`" + `.yaml` + "`" + ` and use forward slashes.
7. **Encoding** is UTF-8 with a trailing newline.
8. **Scope.** Fields may carry ` + "`" + `scope: child` + "`" + ` | ` + "`" + `global` + "`" + ` | ` + "`" + `hidden` + "`" + `;
   omit the key for the default scope.

## Example

` + "```" + `yaml
id: 7b0c9d2e-4f61-4f3a-9a8e-1c2d3e4f5a6b
stamp: 2026-01-20T09:12:44Z
objects:
  - name: Sketch
    label: Profile
  - name: Pad
    fields:
      - name: Base
        kind: linksub
        target: Sketch
        paths:
          - value: Edge1
            shadowed: ;g1;Edge1
  - name: Mirror
    fields:
      - name: Source
        kind: xlink
        file: ../library/base.yaml
        object: Pad
        stamp: 2026-01-18T14:03:11Z
` + "```" + `
`
