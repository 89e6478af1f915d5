// Package domain models the data exchanged between EPA-SWMM and Delft-FEWS.
//
// # Report Tables
//
// The SWMM text report (.rpt) ends with one time-series table per reported
// node, link or subcatchment. Each table opens with a marker line:
//
//	<<< Node J2 >>>
//	-----------------------------------------------------
//	                         Inflow  Flooding     Depth      Head
//	Date        Time            CMS       CMS    meters    meters
//	-----------------------------------------------------
//	03/18/2020  20:05:00      0.000     0.000     0.000    85.000
//
// The marker text becomes the table name with spaces replaced by
// underscores ("Node_J2"). Node and link reports carry the Date/Time labels
// on the units row; subcatchment reports carry them on the header row. The
// first two tokens of every data row are a month-first date and a
// time-of-day, combined into one UTC instant.
//
// Tables are terminated by boilerplate at fixed offsets: the next marker
// (three lines before it), a "***" variable-change banner (five lines before
// it) or the "Analysis begun on" footer (three lines before it).
//
// # Control File Sections
//
// The SWMM input file (.inp) is organised into bracketed sections. The
// adapter rewrites three of them: [OPTIONS] (simulation window), [CURVES]
// (rating and storage curves supplied by FEWS) and [CONTROLS] (date/time
// triggered rules appended at the end of the section).
//
// # Diagnostics
//
// FEWS expects a PI diagnostics file whose levels follow the FEWS
// numbering: 0 fatal, 1 error, 2 warning, 3 info, 4 debug. Lower numbers are
// more severe.
package domain
