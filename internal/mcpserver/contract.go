package mcpserver

// ChangeFormatContract describes the change envelope accepted by the
// apply_change tool and by POST /api/notebook/changes.
const ChangeFormatContract = `# nbsync Change Format

A change is one JSON object. ` + "`id`" + ` is optional (generated when empty),
` + "`source`" + ` defaults to ` + "`user`" + `. Only the fields of the chosen ` + "`kind`" + ` are read.
Cell ids come from the list_cells tool. Changes naming an unknown cell are
recorded but leave the notebook unchanged.

## Kinds

| kind | fields |
|------|--------|
| ` + "`edit`" + ` | ` + "`cellId`" + `, ` + "`forward`" + ` (list of text edits), ` + "`reverse`" + ` (edits that undo ` + "`forward`" + `) |
| ` + "`insert`" + ` | ` + "`cell`" + `, ` + "`index`" + `, optional ` + "`codeCellAboveId`" + ` |
| ` + "`remove`" + ` | ` + "`cell`" + ` (the removed cell), ` + "`index`" + `, optional ` + "`newCellId`" + ` |
| ` + "`remove_all`" + ` | ` + "`newCellId`" + `, ` + "`oldCells`" + ` |
| ` + "`swap`" + ` | ` + "`firstCellId`" + `, ` + "`secondCellId`" + ` |
| ` + "`clear`" + ` | ` + "`oldCells`" + ` (clears outputs and execution counts of code cells) |
| ` + "`modify`" + ` | ` + "`oldCells`" + `, ` + "`newCells`" + ` (replaces cells by id) |

A text edit is ` + "`{\"rangeOffset\": n, \"rangeLength\": n, \"text\": \"...\"}`" + `.
Offsets count Unicode code points of the cell source. Edits apply in order.

A cell is:

` + "```" + `json
{
  "id": "c1",
  "file": "no file",
  "line": 0,
  "state": "finished",
  "data": {
    "cell_type": "code",
    "source": "print(1)",
    "metadata": {},
    "outputs": [],
    "execution_count": null
  }
}
` + "```" + `

` + "`cell_type`" + ` is one of ` + "`code`" + `, ` + "`markdown`" + `, ` + "`raw`" + `. ` + "`source`" + ` is a single string.

## Example

Insert a markdown cell at the top:

` + "```" + `json
{
  "kind": "insert",
  "index": 0,
  "cell": {"id": "intro", "data": {"cell_type": "markdown", "source": "# Results"}}
}
` + "```" + `

Changes are applied asynchronously. Call list_cells afterwards to observe the
result and save_notebook to write it to disk.
`
