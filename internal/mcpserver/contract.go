package mcpserver

// LevelsContract explains how ThinkBlock levels are read. LLM clients should
// consult it before placing blocks.
const LevelsContract = `# ThinkBlock Levels

A project is a board of blocks stacked on levels. Each block is one unit of
work with a title, a description and an optional category.

## Levels

| Level | Meaning |
|-------|---------|
| -1 | Unplaced. Freshly generated or not yet arranged. |
| 0 | Foundation. Work nothing else can start without. |
| 1 | Core infrastructure built directly on the foundation. |
| 2 | Core features that deliver the main value. |
| 3 | Supporting features and integrations. |
| 4 | Refinement: polish, performance, hardening. |
| 5 | Vision. The end goal the lower levels build toward. |

## Rules

1. Levels outside -1..5 are not used. Tools reject them.
2. A block depends only on blocks at the same or a lower level.
3. ` + "`order`" + ` sorts blocks within a level. New blocks are appended at the end of
   their level.
4. Categories are free-form labels. Reuse the names returned by
   ` + "`get_categories`" + ` so the board stays consistent.
`
